package wire

import "github.com/fileharbor/fileharbor/internal/ferrors"

// StatusForError maps an error's code (spec §7) to its wire status code
// (spec §6). KindResource and KindProtocol errors map onto several
// statuses; every other kind maps to exactly one.
func StatusForError(err error) StatusCode {
	fe, ok := ferrors.As(err)
	if !ok {
		return StatusInternalError
	}

	switch fe.Code {
	case ferrors.CodeBadRequest:
		return StatusBadRequest
	case ferrors.CodeUnauthorized:
		return StatusUnauthorized
	case ferrors.CodeForbidden:
		return StatusForbidden
	case ferrors.CodeNotFound:
		return StatusNotFound
	case ferrors.CodeAlreadyExists, ferrors.CodeConflict:
		return StatusConflict
	case ferrors.CodeChecksumMismatch:
		return StatusChecksumMismatch
	case ferrors.CodeRateLimited:
		return StatusRateLimited
	case ferrors.CodeProtocolVersionMismatch:
		return StatusProtocolVersionMismatch
	case ferrors.CodePathTraversal, ferrors.CodeInvalidArgument, ferrors.CodeSizeTooLarge:
		return StatusBadRequest
	case ferrors.CodeDiskFull:
		return StatusDiskFull
	default:
		return StatusInternalError
	}
}
