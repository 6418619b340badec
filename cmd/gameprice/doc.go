// Package main hosts the price engine service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, search, wishlist
//     refresh, and price history endpoints. Requests are validated and routed
//     to the service layer.
//   - Acquisition: internal/scraper holds one scraper per storefront. Each
//     keeps a sticky primary/fallback strategy: the primary path renders the
//     page with headless Chrome (chromedp) and the fallback uses a static
//     Colly client against the store's public endpoints. Once a scraper
//     degrades it stays on the fallback for the life of the process.
//   - Reconciliation: internal/catalog normalizes titles and merges per-store
//     listings into canonical games, creating rows on first sight and
//     enriching empty fields only on later sightings.
//   - History & notifications: internal/history appends price snapshots and
//     evaluates wishlist target and percentage-drop rules, persisting
//     notifications and optionally publishing events to Pub/Sub.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported at
//     /metrics; rendered HTML can be archived to GCS for post-hoc debugging.
//
// Operational notes:
//   - Concurrency model: the two storefront scrapers run concurrently per
//     search; headless renders share a semaphore sized by
//     scraper.max_parallel; per-store QPS limits apply on every request.
//   - Shutdown is coordinated via context cancellation from main; SIGTERM
//     drains the HTTP server before provider teardown.
//
// Run locally: go run ./cmd/gameprice -config config.yaml (or rely solely on
// GAMEPRICE_* env overrides).
package main
