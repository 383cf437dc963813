package notifications

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// ToastNotifier raises an optional Windows desktop toast. It is ambient
// ops tooling, not a substitute for the dashboard, and nothing outside
// this package's tests constructs one, so no failure path raises a
// toast. On any platform but Windows nothing is shown: ShowToast and
// NotifyCriticalAlert return an error.
type ToastNotifier struct {
	appID        string
	dashboardURL string
}

// NewToastNotifier creates a notifier that deep-links toast clicks at
// dashboardURL ("" falls back to http://localhost:8080).
func NewToastNotifier(appID, dashboardURL string) *ToastNotifier {
	if appID == "" {
		appID = "agentctx-core"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &ToastNotifier{appID: appID, dashboardURL: dashboardURL}
}

// ShowToast displays a Windows toast notification with sound.
func (t *ToastNotifier) ShowToast(title, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}

	notification := toast.Notification{
		AppID:   t.appID,
		Title:   title,
		Message: message,
		Audio:   toast.Default,
		Actions: []toast.Action{
			{
				Type:      "protocol",
				Label:     "Open Dashboard",
				Arguments: t.dashboardURL,
			},
		},
	}
	return notification.Push()
}

// NotifyCriticalAlert raises a high-priority toast for a critical
// banner condition (spec.md §4.2 health degradation).
func (t *ToastNotifier) NotifyCriticalAlert(message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}

	notification := toast.Notification{
		AppID:   t.appID,
		Title:   "agentctx-core: critical alert",
		Message: message,
		Audio:   toast.IM,
		Actions: []toast.Action{
			{
				Type:      "protocol",
				Label:     "View Now",
				Arguments: t.dashboardURL,
			},
		},
	}
	return notification.Push()
}

// IsSupported returns true if toast notifications are supported on
// this platform.
func (t *ToastNotifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}
