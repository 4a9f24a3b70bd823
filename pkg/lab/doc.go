// Package lab holds the lab back-office entities, LabUser and LabReport, and
// their HTTP routes.
//
// Every successful create, update or delete is reported to the audit
// recorder after the mutation has been applied. Recording is fire-and-forget:
// an unavailable audit store never changes the status or body of a lab
// response. Updates that change nothing are not recorded.
package lab
