// Package scheduler is the periodic scheduler core.
//
// One loop owns every registered task. Each tick evaluates tasks in
// registration order and runs the ones that are due; two tasks due in the same
// tick both run, in order. A task is due when it has never run or when at
// least its interval has elapsed since its last run. Cron tasks are due once
// the schedule's next activation after the last run has passed.
//
// LastRun is stamped with the actual execution time, before the action runs,
// whatever the outcome. Intervals therefore measure wall-clock time between
// real runs and drift accumulates; this is not a precise cron.
//
// A task error or panic is logged and recorded, then the tick continues. Only
// a panic escaping the loop machinery itself stops Run, with ErrLoopFatal.
package scheduler
