package state

import (
	"testing"
)

func TestStepResult_String(t *testing.T) {
	tests := []struct {
		name     string
		result   StepResult
		expected string
	}{
		{
			name:     "Pending result",
			result:   ResultPending,
			expected: "pending",
		},
		{
			name:     "Success result",
			result:   ResultSuccess,
			expected: "success",
		},
		{
			name:     "Error result",
			result:   ResultError,
			expected: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.result.String()
			if result != tt.expected {
				t.Errorf("String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestStepResult_IsTerminal(t *testing.T) {
	if ResultPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
	if !ResultSuccess.IsTerminal() || !ResultError.IsTerminal() {
		t.Error("success and error must be terminal")
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     StepResult
		to       StepResult
		expected bool
	}{
		{
			name:     "Valid: Pending to Success",
			from:     ResultPending,
			to:       ResultSuccess,
			expected: true,
		},
		{
			name:     "Valid: Pending to Error",
			from:     ResultPending,
			to:       ResultError,
			expected: true,
		},
		{
			name:     "Invalid: Success to Pending",
			from:     ResultSuccess,
			to:       ResultPending,
			expected: false,
		},
		{
			name:     "Invalid: Error to Success",
			from:     ResultError,
			to:       ResultSuccess,
			expected: false,
		},
		{
			name:     "Invalid: Success to Error",
			from:     ResultSuccess,
			to:       ResultError,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsValidRunnerTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     RunnerState
		to       RunnerState
		expected bool
	}{
		{"Valid: Pending to Running", RunnerPending, RunnerRunning, true},
		{"Valid: Running to Finished", RunnerRunning, RunnerFinished, true},
		{"Valid: Pending to Finished", RunnerPending, RunnerFinished, true},
		{"Invalid: Finished to Running", RunnerFinished, RunnerRunning, false},
		{"Invalid: Finished to Pending", RunnerFinished, RunnerPending, false},
		{"Invalid: Running to Pending", RunnerRunning, RunnerPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRunnerTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidRunnerTransition() = %v, want %v", result, tt.expected)
			}
		})
	}
}
