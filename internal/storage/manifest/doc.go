// Package manifest implements storage.Index as one checksummed file per
// generation.
//
// File layout:
//
//	[magic "WSNPMANI"][hdrLen:4][header JSON][dataLen:4][refs JSON][sha256:32]
//
// Lengths are big-endian. The SHA-256 trailer covers every preceding byte.
// Files are written to a temp file, fsynced and renamed into place.
package manifest
