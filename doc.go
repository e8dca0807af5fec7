/*

Package grf is a reader/writer for the GRF archive container used by a game
client family to ship bulk game data, plus the companion THOR patch format
(package grf/thor) that distributes incremental updates to it.

An Archive holds a versioned, zlib-compressed, optionally DES-encrypted
directory of entries over a heap of aligned compressed payloads. Entries can
be added, replaced, renamed or removed in memory; Save persists the result
using one of two strategies:

  - QuickMerge: append-only, rewrites only the header and directory.
  - FullRepack: writes a fresh file and atomically replaces the target.

Save attempts QuickMerge first and falls back to FullRepack on any
write-time error; an Archive opened read-only goes straight to FullRepack.
SaveAs always uses FullRepack.

Applying a stream of patches to an Archive, or to a plain directory tree, is
the job of package grf/patcher, which drives this package's Archive the same
way a game client's auto-patcher would.

Format references this implementation is grounded on:

  - GRF Editor (Tokeiburu): https://github.com/Tokeiburu/GRFEditor
  - rpatchur / gruf THOR reader: https://github.com/L1nkZ/rpatchur

*/
package grf
