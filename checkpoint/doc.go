// Package checkpoint manages the chain file that records a domain's
// ordered history of backup checkpoints, and decides — per backup mode
// — the next checkpoint's name and parent. The chain file is owned
// exclusively by the orchestrator; this package never touches disk
// except through the Chain type's explicit Load/Save calls.
package checkpoint
