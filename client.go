package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/cache"
	"github.com/linkshelf/linkshelf/internal/config"
	"github.com/linkshelf/linkshelf/internal/gateway"
	"github.com/linkshelf/linkshelf/internal/poller"
	"github.com/linkshelf/linkshelf/internal/render"
	"github.com/linkshelf/linkshelf/internal/store"
)

// client 把 Store 与渲染、轮询串起来；渲染输出写入 stdOut。
type client struct {
	store    *store.Store
	logger   *logrus.Logger
	interval time.Duration
	out      *lockedWriter
}

func newClient(cfg *config.Config, logger *logrus.Logger) (*client, error) {
	gw, err := gateway.NewHTTPGateway(gateway.HTTPOptions{
		BaseURL: cfg.Backend.URL,
		Client:  gateway.NewHTTPClient(cfg.Backend.Timeout.DurationValue()),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var snapshots cache.SnapshotStore
	if cfg.SnapshotEnabled() {
		snapshots, err = cache.NewFileSnapshotStore(cfg.Global.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("初始化快照存储失败: %w", err)
		}
	}

	articles, err := cache.New(cache.Options{Gateway: gw, Logger: logger, Snapshots: snapshots})
	if err != nil {
		return nil, err
	}

	st, err := store.New(store.Options{
		Gateway:   gw,
		Cache:     articles,
		Logger:    logger,
		TagLimit:  cfg.Global.PopularTagLimit,
		SiteLimit: cfg.Global.PopularSiteLimit,
	})
	if err != nil {
		return nil, err
	}

	return &client{
		store:    st,
		logger:   logger,
		interval: cfg.Global.PollInterval.DurationValue(),
		out:      &lockedWriter{w: stdOut},
	}, nil
}

// runOnce 查询一次并输出文章与热门聚合，查询失败返回非零退出码。
func (c *client) runOnce(ctx context.Context, opts cliOptions) int {
	if _, err := c.store.Search(ctx, opts.tagQuery, opts.site); err != nil {
		fmt.Fprintf(stdErr, "查询文章失败: %v\n", err)
		return 1
	}
	if err := c.renderAll(ctx); err != nil {
		fmt.Fprintf(stdErr, "输出失败: %v\n", err)
		return 1
	}
	return 0
}

// runWatch 恢复快照、执行首次查询并启动轮询，每次快照替换都会重新渲染，直到 ctx 结束。
func (c *client) runWatch(ctx context.Context, opts cliOptions) int {
	if err := c.store.Restore(ctx); err != nil {
		c.logger.WithError(err).WithField("action", "restore").Warn("snapshot_restore_failed")
	}

	tagQuery, site := opts.tagQuery, opts.site
	if !opts.filterSet {
		active := c.store.ActiveFilter()
		tagQuery, site = active.TagQuery, active.Site
	}

	cancel := c.store.Subscribe(func(snap cache.Snapshot) {
		if err := c.out.do(func(w io.Writer) error { return render.Snapshot(w, snap) }); err != nil {
			c.logger.WithError(err).WithField("action", "render").Warn("render_failed")
		}
	})
	defer cancel()

	if _, err := c.store.Search(ctx, tagQuery, site); err != nil {
		// 首次查询失败时保留恢复出的快照，后端恢复后由轮询器刷新。
		c.logger.WithError(err).WithField("action", "search").Warn("initial_search_failed")
	} else if err := c.renderPopular(ctx); err != nil {
		c.logger.WithError(err).WithField("action", "render").Warn("render_failed")
	}

	p, err := poller.New(poller.Options{
		Prober:    c.store,
		Refresher: liveRefresher{c},
		Interval:  c.interval,
		Logger:    c.logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化轮询器失败: %v\n", err)
		return 1
	}
	if err := p.Start(ctx); err != nil {
		fmt.Fprintf(stdErr, "启动轮询器失败: %v\n", err)
		return 1
	}

	<-ctx.Done()
	p.Stop()

	stats := p.Stats()
	c.logger.WithFields(logrus.Fields{
		"action":    "shutdown",
		"ticks":     stats.Ticks,
		"skipped":   stats.Skipped,
		"refreshes": stats.Refreshes,
		"failures":  stats.Failures,
	}).Info("poller_summary")
	return 0
}

func (c *client) renderAll(ctx context.Context) error {
	if err := c.out.do(func(w io.Writer) error { return render.Snapshot(w, c.store.Snapshot()) }); err != nil {
		return err
	}
	return c.renderPopular(ctx)
}

func (c *client) renderPopular(ctx context.Context) error {
	tagLimit, siteLimit := c.store.Limits()
	return c.writePopular(c.store.PopularTags(ctx, tagLimit), c.store.PopularSites(ctx, siteLimit))
}

func (c *client) writePopular(tags []article.TagCount, sites []article.SiteCount) error {
	return c.out.do(func(w io.Writer) error {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		return render.Popular(w, tags, sites)
	})
}

// liveRefresher 在轮询器完成 RefreshAll 后重新输出热门聚合；文章快照由订阅回调负责。
type liveRefresher struct {
	c *client
}

func (r liveRefresher) RefreshAll(ctx context.Context) error {
	if err := r.c.store.RefreshAll(ctx); err != nil {
		return err
	}
	if err := r.c.writePopular(r.c.store.CachedPopularTags(), r.c.store.CachedPopularSites()); err != nil {
		r.c.logger.WithError(err).WithField("action", "render").Warn("render_failed")
	}
	return nil
}

// lockedWriter 串行化来自订阅回调与主流程的输出。
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) do(fn func(io.Writer) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.w)
}
