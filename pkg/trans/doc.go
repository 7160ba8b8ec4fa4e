/*
Package trans supervises one run of a pipeline definition.

A Trans owns every Stage Copy of the run. Prepare allocates the channels
with the topology dispatcher, builds one copy per stage copy through the
processor factory and initializes them in parallel. Start runs every copy
in its own goroutine; WaitUntilFinished collects the outcome.

	t, err := trans.New(def, steps.Factory(), trans.DefaultConfig())
	if err != nil {
		return err
	}
	if err := t.Execute(ctx); err != nil {
		var runErr *errors.RunError
		if errors.As(err, &runErr) {
			// runErr.Failures names every stage that ended the run
		}
		return err
	}

Control operations apply to the whole run: StopAll stops every copy and
discards rows in flight, SafeStop stops only the source stages so that the
rows already produced drain through the rest of the pipeline, and
Pause/Resume suspend row traffic.

When Config.MonitorInterval is set, a cron job refreshes the channel and
active copy gauges and logs a status line on that cadence.
*/
package trans
