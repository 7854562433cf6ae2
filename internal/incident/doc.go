// Package incident turns probe results into incident lifecycle transitions.
package incident
