// Package imaging loads score pages and glyph templates, converts them to
// OpenCV Mats, crops symbol patches and renders debug overlays.
//
// All operations work with standard Go image.Image types and use a coordinate
// system where (0,0) is at the top-left corner, X increases rightward, and Y
// increases downward. Boxes are geometry.Box values in page pixels.
//
// # Formats
//
// PNG, JPEG, GIF and TIFF pages are decoded. Templates are PNG files, one
// directory per glyph set, loaded in lexical order.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Individual image operations
// are stateless and can be called concurrently on different images. Overlays
// are drawn on a copy, so the page passed in is never modified.
//
// # Mats
//
// GrayMat and BGRMat allocate OpenCV memory outside the Go heap. The caller
// must Close the returned Mat.
//
// # Performance Considerations
//
// For repeated operations on the same image, use ImageCache to avoid redundant
// disk reads. Large images may consume significant memory when cached.
// Consider using Evict() or Clear() to manage memory for long-running processes.
package imaging
