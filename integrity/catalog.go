// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package integrity

import "strings"

// Catalog resolves the dataset an item belongs to.
type Catalog interface {
	DatasetOf(itemID string) (datasetID string, ok bool)
}

// PrefixCatalog resolves item ids of the form "<datasetId>/<localItemId>".
type PrefixCatalog struct{}

func (PrefixCatalog) DatasetOf(itemID string) (string, bool) {
	i := strings.Index(itemID, "/")
	if i <= 0 || i == len(itemID)-1 {
		return "", false
	}
	return itemID[:i], true
}

// MapCatalog is a fixed item -> dataset table, used when items are listed by
// an external catalog rather than namespaced by id.
type MapCatalog map[string]string

func (m MapCatalog) DatasetOf(itemID string) (string, bool) {
	d, ok := m[itemID]
	return d, ok
}
