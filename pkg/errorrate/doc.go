// Package errorrate decides when a stage has rejected too many rows.
//
// A Governor is checked after every rejection. It compares the cumulative
// rejected count against an absolute maximum and, once enough rows have
// been read, against a maximum percentage of rows read:
//
//	gov := errorrate.New(errorrate.Config{MaxErrors: 10, MaxPercentErrors: 5, MinPercentRows: 1000})
//	if err := gov.Check(read, rejected); err != nil {
//		// err wraps errors.ErrRateExceeded
//	}
//
// The percentage is ceil(100 * rejected / read). A zero threshold disables
// the corresponding check.
package errorrate
