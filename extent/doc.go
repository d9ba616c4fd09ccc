// Package extent enumerates the allocated or dirty regions of a disk
// as a sequence of non-overlapping Extent records covering the whole
// disk. Handler has two implementations: NBDHandler, which queries the
// transport's block-status metadata context directly, and
// QemuImgHandler, a tool-based fallback that shells out to qemu-img.
// The backup engine depends only on the Handler interface.
package extent
