// Package extract detects and lifts foreign-language code out of host
// region text.
//
// An extractor inspects the raw text of a single region and reports
// the line ranges that belong to some other language. The document
// layer owns everything downstream of that report: masking the lines
// in the host's virtual document, composing the foreign text into a
// child document, and keeping child identity stable across edits.
//
// Extractors are registered per (host language, region kind) pair.
// Built-in extractors cover interpreter magics in code regions and
// fenced code blocks in markdown; Lua-scripted extractors cover
// everything else without recompiling.
package extract
