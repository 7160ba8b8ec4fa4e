// Package row defines the records that flow between pipeline stages.
//
// A Row is an ordered slice of field values. Its Schema describes each
// position: name, value type and storage type. Every row sent through one
// channel shares the schema bound by the channel's first row; stages that
// read several channels in safe mode compare layouts with Schema.CompareLayout.
//
// Rows are owned by whoever holds them. A stage that sends the same logical
// row to several outputs sends independent copies made with Clone.
package row
