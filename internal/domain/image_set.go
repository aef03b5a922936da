package domain

// PendingImage carries raw image content selected by the operator but not yet uploaded.
type PendingImage struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ImageSlot is either a pending upload or an already materialized URL.
type ImageSlot struct {
	URL     string
	Pending *PendingImage
}

// IsPending reports whether the slot still needs to be uploaded.
func (s ImageSlot) IsPending() bool {
	return s.Pending != nil
}

// PendingSlot wraps raw content into a pending slot.
func PendingSlot(image PendingImage) ImageSlot {
	return ImageSlot{Pending: &image}
}

// UploadedSlot wraps an existing URL into a materialized slot.
func UploadedSlot(url string) ImageSlot {
	return ImageSlot{URL: url}
}

// ImageSet is an ordered image sequence plus the index of the primary image.
// PrimaryIndex stays within [0, len(Images)) whenever Images is non-empty and is 0 otherwise.
type ImageSet struct {
	Images       []ImageSlot
	PrimaryIndex int
}

// Len returns the number of slots in the set.
func (s *ImageSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Images)
}

// Select appends new slots to the end of the sequence without touching the primary index.
func (s *ImageSet) Select(slots ...ImageSlot) {
	if s == nil || len(slots) == 0 {
		return
	}
	s.Images = append(s.Images, slots...)
}

// Remove deletes the slot at index. Out-of-range indices are ignored.
func (s *ImageSet) Remove(index int) {
	if s == nil || index < 0 || index >= len(s.Images) {
		return
	}
	s.Images = append(s.Images[:index:index], s.Images[index+1:]...)
	s.PrimaryIndex = ReindexPrimary(s.PrimaryIndex, index)
	if len(s.Images) == 0 {
		s.PrimaryIndex = 0
	}
}

// SetPrimary marks the slot at index as primary when the index is in range.
func (s *ImageSet) SetPrimary(index int) {
	if s == nil || index < 0 || index >= len(s.Images) {
		return
	}
	s.PrimaryIndex = index
}

// Primary returns the primary slot when the set is non-empty.
func (s *ImageSet) Primary() (ImageSlot, bool) {
	if s == nil || len(s.Images) == 0 {
		return ImageSlot{}, false
	}
	return s.Images[s.PrimaryIndex], true
}

// PendingCount returns the number of slots awaiting upload.
func (s *ImageSet) PendingCount() int {
	if s == nil {
		return 0
	}
	count := 0
	for _, slot := range s.Images {
		if slot.IsPending() {
			count++
		}
	}
	return count
}

// Clone returns a copy whose slice can be mutated independently. Pending content is shared.
func (s ImageSet) Clone() ImageSet {
	return ImageSet{
		Images:       append([]ImageSlot(nil), s.Images...),
		PrimaryIndex: s.PrimaryIndex,
	}
}

// ReindexPrimary returns the primary index after the slot at removed has been deleted.
// Removing the primary falls back to the first image; removing an earlier slot shifts it down.
func ReindexPrimary(primary, removed int) int {
	switch {
	case removed == primary:
		return 0
	case removed < primary:
		return primary - 1
	default:
		return primary
	}
}
