package channel_test

import (
	"context"
	"fmt"
	"time"

	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// Example demonstrates a producer handing rows to a consumer and closing
// the stream with MarkDone.
func Example() {
	schema := row.NewSchema(row.Field("city", row.TypeString))
	ch := channel.New(2, channel.Endpoint{Stage: "read"}, channel.Endpoint{Stage: "write"})

	go func() {
		for _, city := range []string{"Oslo", "Lima", "Pune"} {
			_ = ch.Put(context.Background(), schema, row.Row{city})
		}
		ch.MarkDone()
	}()

	for {
		r, ok := ch.GetWait(10 * time.Millisecond)
		if !ok {
			if ch.IsDone() && ch.Len() == 0 {
				break
			}
			continue
		}
		fmt.Println(r[0])
	}
	fmt.Println(ch.Name())

	// Output:
	// Oslo
	// Lima
	// Pune
	// read.0 - write.0
}
