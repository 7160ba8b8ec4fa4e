/*
Package channel provides the bounded row queues that connect pipeline stage copies.

A RowChannel carries rows from exactly one producer copy to exactly one
consumer copy. It has a fixed capacity: a producer that outruns its consumer
blocks in Put until space frees up, which is how backpressure travels
upstream through a pipeline.

End of stream:

The producer calls MarkDone once it will put no more rows. Rows already
buffered stay readable; a consumer treats the channel as exhausted only when
IsDone reports true and Get returns nothing.

	for {
		r, ok := ch.GetWait(time.Millisecond)
		if ok {
			process(r)
			continue
		}
		if ch.IsDone() {
			if r, ok = ch.Get(); !ok {
				break
			}
			process(r)
		}
	}

Timeouts:

PutWait and GetWait bound each wait so callers can poll stop and pause
flags between attempts. PutWait returns errors.ErrTimeout when the buffer
stayed full, leaving the caller to retry.

Schema binding:

The first Put binds the channel's schema. Every row put afterwards is read
with that schema.
*/
package channel
