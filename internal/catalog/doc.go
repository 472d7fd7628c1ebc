// Package catalog provides the purchasable device catalog for SwitchSync.
//
// Clients browse catalog entries in pages, then purchase one. A purchase
// mints a fresh device ID, seeds every relay channel to off, and hands the
// record to the device repository. The catalog itself is read-mostly;
// entries are seeded at deploy time.
package catalog
