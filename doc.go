/*
Package stablestore keeps structured data in memory regions that survive
process restarts, without a database server.

A Registry owns a set of regions, each identified by a small MemoryID.
Each region is bound to exactly one structure for the lifetime of the
Registry:

1. Cell, a single value.

2. BTreeMap, an ordered map of bounded keys to bounded values.

3. Multimap, a map keyed by pairs of bounded keys, with operations over
all entries sharing a first key.

4. Log, an append-only sequence of values, which needs two regions.

5. UnboundedMap, a map of bounded keys to values of any size.

Types are stored through the Storable and BoundedStorable contracts; the
package provides integers, hashes, principals, blobs, text and
msgpack-encoded values.

# Technical Details

**Regions.**
Open keeps the maps in a Bolt file (stable.db, one bucket per region) and
cells and logs in memory-mapped files (region-NNN.mem) that grow in
64 KiB pages. OpenMemory keeps everything in memory.

**Region state.**
We store a msgpack document per region in the _meta bucket, recording the
structure kind, the key and value bounds, the entry count and the bytes
used. Reopening a region as a different kind is rejected.

**Composite keys.**
Multimap keys are [size prefix][first key][second key]. The size prefix
is the length of the encoded first key, big-endian, 1 byte wide if the
first key type's max size fits in 8 bits, 2 bytes if it fits in 16 bits,
4 bytes otherwise. All entries of a first key k lie in the inclusive range
[prefix k, prefix k FF FF ...], padded to the maximum composite key size.

**Cell layout.**
Header (magic "SCL", version, length:32, xxhash64:64, little-endian), then
the encoded value.

**Log layout.**
Index region: header (magic "SLI", version, count:64), then 16-byte records
(offset:64, length:32, checksum:32). Data region: header (magic "SLD",
version), then the entries back to back. The count is updated last.

**Unbounded values.**
A directory record (length, chunk count, xxhash64) under 0x00 key and the
chunks under 0x01 [size prefix][key][chunk index:32], all written in one
transaction.
*/
package stablestore
