// Package notify delivers password reset links outside the request path.
//
// [Queue] implements goGuard.Notifier by enqueuing an asynq task and
// returning as soon as Redis accepts it. [Worker] consumes those tasks and
// hands them to a [Mailer] ([SMTPMailer] or [LogMailer]). Tasks carry the
// token's expiry as their deadline, so a link is never delivered after it
// stopped working.
package notify
