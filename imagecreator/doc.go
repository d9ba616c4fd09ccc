// Package imagecreator allocates target disk images for the restore
// engine. It is the opaque ImageCreator collaborator named in the
// purpose and scope of this system: the restore engine depends only on
// the Creator interface, never on qemu-img directly.
package imagecreator
