// Package mmfile provides platform-specific helpers for memory-mapping saved
// memory images. Unix systems get a real read-only mapping; other platforms
// fall back to reading the file, which is fine at image sizes.
package mmfile
