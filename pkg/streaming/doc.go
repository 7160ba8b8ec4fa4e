/*
Package streaming groups the row transports of a pipeline.

Subpackages:
  - channel: bounded in-process channels between stage copies
  - remote: socket streams between stage copies of different processes
*/
package streaming
