// Package runconfig holds the user-chosen parameters of an analysis run: the
// anomaly categories to recognize and the named settings passed to the
// backend stages.
//
// Settings are an open mapping because the backend accepts additional keys
// verbatim; typed accessors cover the keys the pipeline itself reads. A
// RunConfiguration is snapshotted when a run starts so later edits never
// reach an in-flight run.
package runconfig
