// Package partition decides which downstream partition a row belongs to.
//
// A stage may be partitioned with one of three methods. None sends rows
// according to the producer's distribution mode. Mirror copies every row
// to every partition. Special asks a Partitioner for the row's partition
// number, which must lie in [0, NrPartitions()).
//
// Partitioners are created by id from a Registry. The built-in "mod"
// partitioner takes the value of one integer field modulo the partition
// count; non-integer values are hashed with xxh3 first. The "hash"
// partitioner hashes several key fields together.
//
// When repartitioning happens inside one process, the partition number
// picks the output channel with LocalTargets: the channel at
// partitionNr + i*partitionCount for the i-th next stage.
package partition
