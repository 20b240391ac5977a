// Package all wires the built-in object stores into the storage factory.
//
// Importing it (as a blank import) runs each backend's init, which registers
// its URL scheme:
//
//   - "file" (datalake/internal/storage/file)
//   - "s3"   (datalake/internal/storage/s3)
//
// A binary that must not link the AWS SDK can import storage/file alone.
package all

import (
	_ "datalake/internal/storage/file"
	_ "datalake/internal/storage/s3"
)
