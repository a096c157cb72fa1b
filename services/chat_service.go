package services

import (
	"chathub/domain"
	"chathub/errors"
	"chathub/repositories"
	stderrors "errors"
	"log/slog"
)

type IChatService interface {
	SendMessage(sender string, in SendMessageInput) (domain.RoomID, domain.Message, error)
	OpenGroupChat(creator string, members []string) (domain.RoomID, error)
	LeaveChatRoom(uid string, roomID domain.RoomID) error
	History(uid string, roomID domain.RoomID) ([]domain.Message, error)
	Rooms(uid string) ([]domain.ChatRoom, error)
	Authorize(uid string, roomID domain.RoomID) error
}

// ChatService drives the upward operations: send, open-group, leave,
// history. It mutates the ledger through the resolver and reconciler and the
// message log through the message repository.
type ChatService struct {
	log        *slog.Logger
	users      repositories.IUserRepository
	rooms      repositories.IRoomRepository
	messages   repositories.IMessageRepository
	resolver   *RoomResolver
	reconciler *Reconciler
}

func NewChatService(
	log *slog.Logger,
	users repositories.IUserRepository,
	rooms repositories.IRoomRepository,
	messages repositories.IMessageRepository,
	resolver *RoomResolver,
	reconciler *Reconciler,
) *ChatService {
	return &ChatService{
		log:        log,
		users:      users,
		rooms:      rooms,
		messages:   messages,
		resolver:   resolver,
		reconciler: reconciler,
	}
}

// SendMessageInput targets either an existing room by id or, for the first
// message of a private conversation, the other participant's uid.
type SendMessageInput struct {
	ChatRoomID domain.RoomID
	To         string
	Body       string
}

// SendMessage appends a message to the target room, deriving and creating
// the private room first when only a target uid is given. Two users sending
// to each other concurrently derive the identical room id, so exactly one
// room record exists afterward.
func (s *ChatService) SendMessage(sender string, in SendMessageInput) (domain.RoomID, domain.Message, error) {
	if in.Body == "" {
		return "", domain.Message{}, errors.ErrInvalidInput
	}

	roomID := in.ChatRoomID
	switch {
	case roomID != "":
		room, err := s.rooms.GetRoom(roomID)
		if err != nil {
			return "", domain.Message{}, err
		}
		if !room.HasMember(sender) {
			return "", domain.Message{}, errors.ErrForbidden
		}
	case in.To != "":
		if _, err := s.users.GetUser(in.To); err != nil {
			return "", domain.Message{}, err
		}
		var err error
		roomID, err = s.resolver.EnsurePrivateRoom(sender, in.To)
		if err != nil {
			return "", domain.Message{}, err
		}
		s.reconciler.LinkMembers(roomID, []string{sender, in.To})
	default:
		return "", domain.Message{}, errors.ErrInvalidInput
	}

	msg, err := s.messages.Append(roomID, sender, in.Body)
	if err != nil {
		return "", domain.Message{}, err
	}
	return roomID, msg, nil
}

// OpenGroupChat creates a group room with the creator and invitees as
// members and links it into each member's room list. Every invitee must
// exist in the ledger: membership is written into the room record, so a
// ghost uid would persist there even though linkage skips it.
func (s *ChatService) OpenGroupChat(creator string, members []string) (domain.RoomID, error) {
	for _, uid := range members {
		if _, err := s.users.GetUser(uid); err != nil {
			return "", err
		}
	}
	roomID, err := s.resolver.CreateGroupRoom(creator, members)
	if err != nil {
		return "", err
	}
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return "", err
	}
	s.reconciler.LinkMembers(roomID, room.Members)
	return roomID, nil
}

// LeaveChatRoom removes the room from the leaver's room list. For group
// rooms the leaver is also removed from the member set; private room
// membership is immutable, so there only the room list shrinks.
func (s *ChatService) LeaveChatRoom(uid string, roomID domain.RoomID) error {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room.Type == domain.RoomGroup {
		if err := s.reconciler.RemoveMemberFromGroupRoom(roomID, uid); err != nil {
			return err
		}
	}
	return s.reconciler.RemoveRoomFromUser(uid, roomID)
}

// History returns the room's full message history, oldest first. Only
// members may read it.
func (s *ChatService) History(uid string, roomID domain.RoomID) ([]domain.Message, error) {
	if err := s.Authorize(uid, roomID); err != nil {
		return nil, err
	}
	return s.messages.History(roomID)
}

// Rooms resolves the user's room list to full room records, in first-contact
// order. A list entry whose room record is gone is skipped rather than
// failing the whole listing.
func (s *ChatService) Rooms(uid string) ([]domain.ChatRoom, error) {
	user, err := s.users.GetUser(uid)
	if err != nil {
		return nil, err
	}
	rooms := make([]domain.ChatRoom, 0, len(user.Chats))
	for _, id := range user.Chats {
		room, err := s.rooms.GetRoom(id)
		if stderrors.Is(err, errors.ErrNotFound) {
			s.log.Warn("room list entry without room record", "uid", uid, "room", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// Authorize reports whether the user may read from the room.
func (s *ChatService) Authorize(uid string, roomID domain.RoomID) error {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return err
	}
	if !room.HasMember(uid) {
		return errors.ErrForbidden
	}
	return nil
}
