// Package store defines the entities and the persistence contract shared by the
// crawl pipeline and the query engine. Implementations live in
// internal/storage; this package must not import database drivers or concrete
// clients.
package store
