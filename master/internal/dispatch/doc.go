// Package dispatch routes alarm notifications to users. Each contact
// on a user names a medium ("email", "workPhone", "xmpp"); channels
// claim media by case-insensitive suffix and the engine hands every
// contact to the first channel that accepts it. Channels own their
// transport and their retry policy.
package dispatch
