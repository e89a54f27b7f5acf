/*
Package frame implements the low level framing of PBZ containers.

A decompressed container starts with the two magic bytes 0x41 0x42 ("AB"),
followed by zero or more frames:

	frame    := type_tag:u8 length:varint payload:byte[length]
	type_tag := 1 (FileDescriptor) | 2 (DescriptorName) | 3 (Message) | 4 (ProtobufVersion)

The length is a protobuf style base-128 varint of at most 10 bytes.

This package only deals with the byte layout. The compression transform and
the interpretation of the frames across a stream live in the container
package.
*/
package frame
