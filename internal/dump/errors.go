// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dump

import "errors"

// ErrMisalignedArea is returned for areas not on page boundaries.
var ErrMisalignedArea = errors.New("area not page aligned")
