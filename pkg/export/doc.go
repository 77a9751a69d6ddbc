// Package export bundles generation results into downloadable files.
//
// Supported formats:
//   - archive: a zip with images/, optional data/, summary.json, summary.csv and README.txt
//   - json: one document with an export header and every result
//   - csv: a flat table
//   - printable: paginated HTML cards for print-to-PDF
//   - gallery: self-contained HTML with a save link per image
//
// Exports report progress through a callback, can be cancelled between
// results, and never return partial data on failure.
package export
