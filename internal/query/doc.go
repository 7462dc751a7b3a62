// Package query normalizes comma-delimited tag queries into their canonical
// form. The canonical form is the comparison key for tag search filters and
// for tag-suggestion click-to-add, so differently spaced or cased spellings of
// the same tag set always compare equal.
package query
