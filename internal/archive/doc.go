// Package archive turns an uploaded theme archive into a canonical package directory.
//
// A package root holds three subdirectories: unzippedTheme/ with the extracted
// theme files, zipped/ with the original upload, and thumbnail/. Extraction
// supports zip and tar (plain, gzip, xz, zstd) and always ends with Normalize,
// which flattens a single wrapper folder so index.html sits directly under
// unzippedTheme/.
//
// Entries that resolve outside the destination abort extraction. Symlinks,
// hard links and macOS metadata are skipped.
package archive
