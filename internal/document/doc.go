// Package document implements virtual documents: single-language text
// buffers composed from one or more host editor regions and kept in
// sync with language servers.
//
// A virtual document tracks the composed text, a monotonically
// increasing version, the source blocks it was assembled from, padding
// lines that exist only in the composed text, and child documents for
// foreign-language fragments discovered by extractors. The package is
// deliberately network-free: it emits signals and leaves all LSP
// traffic to its consumers.
//
// Position mapping between host coordinates (code-point columns) and
// virtual coordinates (UTF-16 columns, as LSP requires) lives here too,
// because the source map built at composition time is what makes the
// mapping exact.
package document
