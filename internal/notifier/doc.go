// Package notifier is the notification dispatcher.
//
// Send performs exactly one synchronous delivery with a bounded timeout and
// reports the outcome as a DeliveryResult. It never returns an error and
// never panics: transport errors, non-ok API responses, rate limiting and
// channel panics all become Success=false with a Detail for logging.
//
// There is no retry inside Send. A scheduled task that fails is retried when
// it next becomes due.
package notifier
