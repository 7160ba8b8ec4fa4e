/*
Package pipeline describes a pipeline as a graph of stages joined by hops.

A Definition lists stages and the hops between them. Each stage names the
processor type that implements it, how many copies run in parallel, how
its input is partitioned, how its output is distributed, and where its
rejected rows go.

# Loading

	def, err := pipeline.LoadFile("orders.json")
	if err != nil {
		return err
	}
	if err := def.Validate().Err(); err != nil {
		return err
	}

A minimal document:

	{
	  "name": "orders",
	  "bufferSize": 1000,
	  "stages": [
	    {"name": "read", "type": "generator", "options": {"rows": 100}},
	    {"name": "check", "type": "validator", "copies": 2, "distribute": true,
	     "errorHandling": {"target": "rejects", "maxErrors": 10}},
	    {"name": "rejects", "type": "dummy"}
	  ],
	  "hops": [
	    {"from": "read", "to": "check"},
	    {"from": "check", "to": "rejects"}
	  ]
	}

# Graph queries

NextStages and PrevStages follow enabled hops in declaration order; that
order decides the order of a stage's output channels. IsBefore reports
whether one stage is upstream of another.
*/
package pipeline
