package engine

import "github.com/google/uuid"

func NewSessionID() SessionID       { return SessionID(uuid.NewString()) }
func NewChallengeID() ChallengeID   { return ChallengeID(uuid.NewString()) }
func NewActivationID() ActivationID { return ActivationID(uuid.NewString()) }
