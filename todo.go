// Package entrykart is maintenance billing for residential societies.
package entrykart

// TODO: admin: `ensure-all` command sweeping every owner of a society, for the monthly cron
// TODO: admin: upload CSV to bulk register flat owners via API
// TODO: receipts for paid records (PDF ?)

// Version X
// FIXME: edge cases
//  - owner of several flats: FlatOwner is keyed by email, so 1 email -> 1 flat for now
//  - flat changing hands mid-month: the record stays with the previous owner
//  - per-society base amount and grace day (config is global)
