// Package stage models the analysis pipeline stages and their progress.
//
// Stage names form a closed, ordered vocabulary; a run operates on a List
// built for its Mode. Statuses only ever move pending -> in-progress -> done.
// There is deliberately no failed status: a run that stops on a failing
// backend call leaves that stage in-progress, which is how boards show where
// the run stopped.
package stage
