// Package migrations holds the ordered migration set for the shoptrack
// database. Every unit guards its own effects with schema introspection
// so repeated runs are no-ops; the runner only tracks sequence numbers.
package migrations

import "shoptrack/internal/migrate"

// Config carries the external inputs some units consume. Empty fields
// make the corresponding unit skip with a logged notice.
type Config struct {
	// OEFeedPath is the authoritative order-entry list (.xlsx or .csv)
	// used by the PO-activity flag.
	OEFeedPath string
	// AliasFile is the YAML customer→folder mapping.
	AliasFile string
	// DrawingsDir is the root of the drawing file share.
	DrawingsDir string
}

// Units returns the full migration set in execution order.
func Units(cfg Config) []migrate.Unit {
	return []migrate.Unit{
		{Seq: 1, Name: "001_base_schema", Up: baseSchemaUp, Down: baseSchemaDown},
		{Seq: 2, Name: "002_extract_customers", Up: extractCustomersUp, Down: extractCustomersDown},
		{Seq: 3, Name: "003_build_orders", Up: buildOrdersUp, Down: buildOrdersDown},
		{Seq: 4, Name: "004_unique_keys", Up: uniqueKeysUp, Down: uniqueKeysDown},
		{Seq: 5, Name: "005_rewrite_legacy_npo", Up: rewriteLegacyNPOUp, Down: noRevert("005_rewrite_legacy_npo")},
		{Seq: 6, Name: "006_po_activity", Up: poActivityUp(cfg), Down: poActivityDown},
		{Seq: 7, Name: "007_backfill_assemblies", Up: backfillAssembliesUp, Down: noRevert("007_backfill_assemblies")},
		{Seq: 8, Name: "008_build_part_graph", Up: buildPartGraphUp, Down: buildPartGraphDown},
		{Seq: 9, Name: "009_reclassify_parts", Up: reclassifyPartsUp, Down: noRevert("009_reclassify_parts")},
		{Seq: 10, Name: "010_match_drawings", Up: matchDrawingsUp(cfg), Down: matchDrawingsDown},
		{Seq: 11, Name: "011_normalize_dates", Up: normalizeDatesUp, Down: normalizeDatesDown},
		{Seq: 12, Name: "012_seed_users", Up: seedUsersUp, Down: seedUsersDown},
	}
}
