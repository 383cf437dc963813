package store

// HierarchyRequest is one request row in the flat hierarchy view,
// carrying links instead of nested children (the resolved Open
// Question in SPEC_FULL.md §9: flat-plus-links by default).
type HierarchyRequest struct {
	*Request
	TaskListIDs []string `json:"task_list_ids"`
}

// HierarchyTaskList is one wave row, linked to its request and its
// subtasks.
type HierarchyTaskList struct {
	*TaskList
	SubtaskIDs []string `json:"subtask_ids"`
}

// Hierarchy is the flat view GET /api/hierarchy/{project-id} returns:
// every request, wave, and subtask under a project, each carrying
// foreign-key links rather than nested children. NestedHierarchy
// below builds the alternative tree shape for ?nested=true.
type Hierarchy struct {
	Project   *Project             `json:"project"`
	Requests  []*HierarchyRequest  `json:"requests"`
	TaskLists []*HierarchyTaskList `json:"task_lists"`
	Subtasks  []*Subtask           `json:"subtasks"`
}

// ProjectHierarchy assembles the flat hierarchy view for a project.
func (d *DB) ProjectHierarchy(projectID string) (*Hierarchy, error) {
	proj, err := d.ProjectByID(projectID)
	if err != nil {
		return nil, err
	}

	rows, err := d.conn.Query(
		`SELECT id, project_id, session_id, prompt, category, status, metadata, created_at, completed_at
		 FROM requests WHERE project_id = ? ORDER BY created_at ASC`, projectID,
	)
	if err != nil {
		return nil, err
	}
	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		requests = append(requests, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	h := &Hierarchy{Project: proj}
	for _, req := range requests {
		taskLists, err := d.ListTaskLists(req.ID)
		if err != nil {
			return nil, err
		}
		hr := &HierarchyRequest{Request: req}
		for _, tl := range taskLists {
			subtasks, err := d.ListSubtasksByTaskList(tl.ID)
			if err != nil {
				return nil, err
			}
			htl := &HierarchyTaskList{TaskList: tl}
			for _, st := range subtasks {
				htl.SubtaskIDs = append(htl.SubtaskIDs, st.ID)
				h.Subtasks = append(h.Subtasks, st)
			}
			hr.TaskListIDs = append(hr.TaskListIDs, tl.ID)
			h.TaskLists = append(h.TaskLists, htl)
		}
		h.Requests = append(h.Requests, hr)
	}
	return h, nil
}

// NestedRequest is one request in the ?nested=true tree shape, with
// its waves and their subtasks embedded inline instead of linked by
// id.
type NestedRequest struct {
	*Request
	TaskLists []*NestedTaskList `json:"task_lists"`
}

// NestedTaskList is one wave with its subtasks embedded inline.
type NestedTaskList struct {
	*TaskList
	Subtasks []*Subtask `json:"subtasks"`
}

// NestedHierarchy assembles the project->requests->waves->subtasks
// tree for ?nested=true.
func (d *DB) NestedHierarchy(projectID string) (*Project, []*NestedRequest, error) {
	proj, err := d.ProjectByID(projectID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := d.conn.Query(
		`SELECT id, project_id, session_id, prompt, category, status, metadata, created_at, completed_at
		 FROM requests WHERE project_id = ? ORDER BY created_at ASC`, projectID,
	)
	if err != nil {
		return nil, nil, err
	}
	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, nil, err
		}
		requests = append(requests, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nested []*NestedRequest
	for _, req := range requests {
		taskLists, err := d.ListTaskLists(req.ID)
		if err != nil {
			return nil, nil, err
		}
		nr := &NestedRequest{Request: req}
		for _, tl := range taskLists {
			subtasks, err := d.ListSubtasksByTaskList(tl.ID)
			if err != nil {
				return nil, nil, err
			}
			nr.TaskLists = append(nr.TaskLists, &NestedTaskList{TaskList: tl, Subtasks: subtasks})
		}
		nested = append(nested, nr)
	}
	return proj, nested, nil
}
