// Package schedule provides a drift-free periodic Timer and cron helpers.
//
// A Timer computes the instant of its first tick from a Begin policy
// (immediately, aligned to a wall-clock unit, a list of times of day, or a
// cron expression), then invokes its tick function every interval. The
// next run is advanced additively from the previous target, so a slow tick
// is caught up rather than shifting every later tick. Tick errors and
// panics are logged and never stop the loop; only Stop or a cancelled
// context does.
//
// Cron functions parse and validate cron expressions and compute upcoming run times.
package schedule
