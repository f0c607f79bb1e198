// Package crawler implements the crawl attempt pipeline: claim a frontier
// entry, check robots, fetch, classify, extract, index, ingest links, and
// release the entry.
package crawler
