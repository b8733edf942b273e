package consensus

import (
	"fmt"

	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various consensus events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTBlockAccepted indicates a block was connected to the block store.
	NTBlockAccepted NotificationType = iota

	// NTLevelDecided indicates a proposer level got a leader, changed its
	// leader, or was finalized.
	NTLevelDecided

	// NTLedgerExtended indicates the confirmed ledger changed.
	NTLedgerExtended

	// NTReorgSafetyViolation indicates the votes of a finalized level moved
	// to another proposer block.
	NTReorgSafetyViolation
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTBlockAccepted:        "NTBlockAccepted",
	NTLevelDecided:         "NTLevelDecided",
	NTLedgerExtended:       "NTLedgerExtended",
	NTReorgSafetyViolation: "NTReorgSafetyViolation",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// Notification defines notification that is sent to the caller via the
// callback function provided during the call to Subscribe. The data it
// carries is shared between subscribers and must not be modified.
//
// The following table describes the data each notification type carries:
//   - NTBlockAccepted:        *BlockAcceptedNotificationData
//   - NTLevelDecided:         *model.LevelDecision
//   - NTLedgerExtended:       *model.LedgerUpdate
//   - NTReorgSafetyViolation: *ReorgSafetyViolationNotificationData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// BlockAcceptedNotificationData defines data to be sent along with a
// BlockAccepted notification
type BlockAcceptedNotificationData struct {
	Block         *externalapi.DomainBlock
	BlockHash     *externalapi.DomainHash
	WasUnorphaned bool
}

// ReorgSafetyViolationNotificationData defines data to be sent along with a
// ReorgSafetyViolation notification
type ReorgSafetyViolationNotificationData struct {
	Err error
}

// Subscribe to consensus notifications. Registers a callback to be executed
// when various events take place. See the documentation on Notification and
// NotificationType for details on the types and contents of notifications.
// Callbacks must not call ValidateAndInsertBlock.
func (s *consensus) Subscribe(callback NotificationCallback) {
	s.notificationsLock.Lock()
	defer s.notificationsLock.Unlock()
	s.notifications = append(s.notifications, callback)
}

// sendNotification sends a notification with the passed type and data if the
// caller requested notifications by providing a callback function in the call
// to Subscribe.
func (s *consensus) sendNotification(typ NotificationType, data interface{}) {
	s.notificationsLock.RLock()
	callbacks := make([]NotificationCallback, len(s.notifications))
	copy(callbacks, s.notifications)
	s.notificationsLock.RUnlock()

	// Generate and send the notification.
	n := Notification{Type: typ, Data: data}
	for _, callback := range callbacks {
		callback(&n)
	}
}

// pendingNotifications collects the notifications raised while the
// consensus lock is held. They are sent once it is released.
type pendingNotifications []*Notification

func (p *pendingNotifications) add(typ NotificationType, data interface{}) {
	*p = append(*p, &Notification{Type: typ, Data: data})
}

func (s *consensus) sendPendingNotifications(pending pendingNotifications) {
	for _, notification := range pending {
		s.sendNotification(notification.Type, notification.Data)
	}
}

func (s *consensus) onLedgerUpdate(update *model.LedgerUpdate) {
	s.sendNotification(NTLedgerExtended, update)
}
