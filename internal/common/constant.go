package common

// RequestIDHeaderName carries the per-request correlation id on HTTP
// requests and responses.
const RequestIDHeaderName = "X-Request-Id"

// APIPrefix is the root of the JSON API.
const APIPrefix = "/api/schemacrawler"

// ResultsPrefix is the legacy results root kept for older links.
const ResultsPrefix = "/schemacrawler/results"
