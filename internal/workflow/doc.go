// Package workflow implements the Temporal workflows of the exam service.
//
// AttemptWorkflow owns one applicant's answer while it is being taken. The
// applicant's client drives it with signals:
//
//   - attempt.start opens the answer and arms the time limit
//   - attempt.submit records one response
//   - attempt.finish scores and closes the answer
//
// The attempt.status query reports progress without touching storage.
//
// Workflows here must stay deterministic. Storage, clocks and event
// emission happen in the activities of package attempt; the workflow only
// sequences them and uses workflow.Now and workflow timers for the limit.
package workflow
