// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package layout

import "errors"

// ErrInvalidLayout is returned if a [Layout] is inconsistent.
var ErrInvalidLayout = errors.New("invalid memory layout")
