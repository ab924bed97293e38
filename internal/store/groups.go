package store

import (
	"database/sql"
	"fmt"
)

// Duplicate group key kinds
const (
	GroupKeyHash        = "hash"
	GroupKeyFingerprint = "fingerprint"
)

// DuplicateGroup is a set of files deemed equivalent by content hash or
// fingerprint similarity. Exactly one member is the primary.
type DuplicateGroup struct {
	ID            int64
	KeyKind       string
	KeyValue      string
	PrimaryFileID int64
	Size          int
}

// DuplicateMember links a file into a duplicate group
type DuplicateMember struct {
	ID         int64
	GroupID    int64
	FileID     int64
	IsPrimary  bool
	Similarity float64
}

// InsertDuplicateGroup creates a group together with its members in one
// database transaction so a crash never leaves a half-written group.
func (s *Store) InsertDuplicateGroup(g *DuplicateGroup, members []*DuplicateMember) error {
	return s.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO duplicate_groups (key_kind, key_value, primary_file_id, size)
			VALUES (?, ?, NULLIF(?, 0), ?)
		`, g.KeyKind, g.KeyValue, g.PrimaryFileID, len(members))
		if err != nil {
			return classify(err)
		}

		groupID, err := result.LastInsertId()
		if err != nil {
			return err
		}
		g.ID = groupID
		g.Size = len(members)

		stmt, err := tx.Prepare(`
			INSERT INTO duplicate_members (group_id, file_id, is_primary, similarity)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return classify(err)
		}
		defer stmt.Close()

		for _, m := range members {
			m.GroupID = groupID
			if _, err := stmt.Exec(groupID, m.FileID, m.IsPrimary, m.Similarity); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

// SetGroupPrimary marks one member as primary and records it on the group.
// Any previous primary flag in the group is cleared first.
func (s *Store) SetGroupPrimary(groupID, fileID int64) error {
	return s.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"UPDATE duplicate_members SET is_primary = 0 WHERE group_id = ?", groupID); err != nil {
			return classify(err)
		}
		if _, err := tx.Exec(
			"UPDATE duplicate_members SET is_primary = 1 WHERE group_id = ? AND file_id = ?",
			groupID, fileID); err != nil {
			return classify(err)
		}
		if _, err := tx.Exec(
			"UPDATE duplicate_groups SET primary_file_id = ? WHERE id = ?",
			fileID, groupID); err != nil {
			return classify(err)
		}
		return nil
	})
}

// GetAllDuplicateGroups retrieves all duplicate groups
func (s *Store) GetAllDuplicateGroups() ([]*DuplicateGroup, error) {
	rows, err := s.db.Query(`
		SELECT id, key_kind, key_value, COALESCE(primary_file_id, 0), size
		FROM duplicate_groups ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", classify(err))
	}
	defer rows.Close()

	var groups []*DuplicateGroup
	for rows.Next() {
		g := &DuplicateGroup{}
		if err := rows.Scan(&g.ID, &g.KeyKind, &g.KeyValue, &g.PrimaryFileID, &g.Size); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetGroupMembers retrieves the members of a group
func (s *Store) GetGroupMembers(groupID int64) ([]*DuplicateMember, error) {
	rows, err := s.db.Query(`
		SELECT id, group_id, file_id, is_primary, COALESCE(similarity, 0)
		FROM duplicate_members WHERE group_id = ? ORDER BY id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", classify(err))
	}
	defer rows.Close()

	var members []*DuplicateMember
	for rows.Next() {
		m := &DuplicateMember{}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.FileID, &m.IsPrimary, &m.Similarity); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GroupForFile returns the duplicate group containing fileID, or nil
func (s *Store) GroupForFile(fileID int64) (*DuplicateGroup, error) {
	g := &DuplicateGroup{}
	err := s.db.QueryRow(`
		SELECT g.id, g.key_kind, g.key_value, COALESCE(g.primary_file_id, 0), g.size
		FROM duplicate_groups g
		JOIN duplicate_members m ON m.group_id = g.id
		WHERE m.file_id = ?
	`, fileID).Scan(&g.ID, &g.KeyKind, &g.KeyValue, &g.PrimaryFileID, &g.Size)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group for file: %w", classify(err))
	}
	return g, nil
}

// DeleteDuplicateGroup removes a group; members cascade
func (s *Store) DeleteDuplicateGroup(groupID int64) error {
	_, err := s.exec("DELETE FROM duplicate_groups WHERE id = ?", groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

// ClearDuplicateGroups removes all groups and members (force regroup)
func (s *Store) ClearDuplicateGroups() error {
	_, err := s.exec("DELETE FROM duplicate_groups")
	if err != nil {
		return fmt.Errorf("failed to clear groups: %w", err)
	}
	return nil
}
